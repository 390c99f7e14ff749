// README: Places handlers over the maps services.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"schoolride/internal/maps"
	"schoolride/internal/types"
)

type PlacesHandler struct {
	places       *maps.PlacesService
	autocomplete *maps.Autocompleter
}

func NewPlacesHandler(places *maps.PlacesService, autocomplete *maps.Autocompleter) *PlacesHandler {
	return &PlacesHandler{places: places, autocomplete: autocomplete}
}

func (h *PlacesHandler) Geocode(c *gin.Context) {
	loc, err := h.places.Geocode(c.Request.Context(), c.Query("address"))
	if err != nil {
		writeMapsError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, loc)
}

func (h *PlacesHandler) Reverse(c *gin.Context) {
	p, ok := queryPoint(c)
	if !ok {
		return
	}
	addr, err := h.places.ReverseGeocode(c.Request.Context(), p)
	if err != nil {
		writeMapsError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, types.Location{Lat: p.Lat, Lng: p.Lng, Address: addr})
}

// Autocomplete keys sessions by caller and the client's session id.
func (h *PlacesHandler) Autocomplete(c *gin.Context) {
	session := string(callerID(c)) + ":" + c.Query("session")
	predictions, err := h.autocomplete.Predict(c.Request.Context(), session, c.Query("input"))
	if err != nil {
		writeMapsError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"predictions": predictions})
}

// EndAutocomplete releases the session once the user has picked a place.
func (h *PlacesHandler) EndAutocomplete(c *gin.Context) {
	if c.Query("session") == "" {
		writeError(c, http.StatusBadRequest, "missing session")
		return
	}
	h.autocomplete.End(string(callerID(c)) + ":" + c.Query("session"))
	c.Status(http.StatusNoContent)
}

func (h *PlacesHandler) Nearby(c *gin.Context) {
	p, ok := queryPoint(c)
	if !ok {
		return
	}
	radius, err := strconv.Atoi(c.DefaultQuery("radius", "2000"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid radius")
		return
	}
	places, err := h.places.NearbySearch(c.Request.Context(), c.Query("keyword"), p, radius)
	if err != nil {
		writeMapsError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"places": places})
}

func queryPoint(c *gin.Context) (types.Point, bool) {
	lat, okLat := queryFloat(c, "lat")
	lng, okLng := queryFloat(c, "lng")
	if !okLat || !okLng {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}

package model

import (
	"encoding/json"
	"fmt"
)

var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// CheckGeometry makes sure raw is a GeoJSON geometry object. Coordinates are
// not inspected; topology checks belong to whoever consumes the geometry.
func CheckGeometry(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("geometry is required")
	}
	var g struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
		Geometries  json.RawMessage `json:"geometries"`
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return fmt.Errorf("geometry must be a GeoJSON object")
	}
	if !geometryTypes[g.Type] {
		return fmt.Errorf("geometry type %q is not a GeoJSON geometry", g.Type)
	}
	if g.Type == "GeometryCollection" {
		if len(g.Geometries) == 0 {
			return fmt.Errorf("GeometryCollection needs geometries")
		}
		return nil
	}
	if len(g.Coordinates) == 0 {
		return fmt.Errorf("%s needs coordinates", g.Type)
	}
	return nil
}

// checkFilter accepts a CQL2-JSON expression: any JSON object carrying "op".
func checkFilter(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(raw, &f); err != nil || f.Op == "" {
		return fmt.Errorf("filter must be a CQL2-JSON object with an op")
	}
	return nil
}

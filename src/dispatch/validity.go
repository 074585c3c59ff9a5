package dispatch

import (
	"encoding/json"

	"garnix-insights/src/render"
)

func renderValidity(valid bool, f render.Format) string {
	switch f {
	case render.Structured:
		b, _ := json.Marshal(struct {
			Valid bool `json:"valid"`
		}{valid})
		return string(b) + "\n"
	case render.Plain:
		if valid {
			return "valid\n"
		}
		return "invalid\n"
	default:
		if valid {
			return "Token is valid.\n"
		}
		return "Token was rejected by Garnix.\n"
	}
}

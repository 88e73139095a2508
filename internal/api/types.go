package api

import "encoding/json"

// LoginRequest is the body of POST /v3/login.
type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	WantToken bool   `json:"wt"` // ask for the utip token as well
}

// LoginResponse from POST /v3/login.
// Result is "OK" on success; anything else is a human-readable failure reason.
type LoginResponse struct {
	Result         string      `json:"result"`
	AcsToken       string      `json:"acsToken"`
	AcsTokenExpire string      `json:"acsTokenExpire"`
	UtipToken      string      `json:"utipToken,omitempty"`
	AcsUserID      json.Number `json:"acsUserId,omitempty"`
}

// OK reports whether the response carries a usable session.
func (r *LoginResponse) OK() bool {
	return r.Result == "OK" && r.AcsToken != ""
}

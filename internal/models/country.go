package models

// Country is an ISO-3166 catalog entry referenced by profiles.
type Country struct {
	Code   string `json:"code"`
	Alpha3 string `json:"alpha3"`
	Name   string `json:"name"`
}

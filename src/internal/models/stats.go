package models

type Stats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Inactive     int64 `json:"inactive"`
	Suspended    int64 `json:"suspended"`
	Admins       int64 `json:"admins"`
	Moderators   int64 `json:"moderators"`
	NewThisMonth int64 `json:"newThisMonth"`
}

package models

// Credentials identify the trading account at the venue
type Credentials struct {
	Login    string
	Password string
	Server   string
	Path     string
}

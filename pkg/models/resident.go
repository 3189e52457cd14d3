package models

import "time"

// Resident is one entry of the facility roster the entity matcher scores
// extracted documents against.
type Resident struct {
	// ID is the facility's stable resident identifier.
	ID string `json:"id"`

	// Chinese name split the way the admission records keep it.
	Surname   string `json:"surname"`
	GivenName string `json:"given_name"`

	// EnglishName is the romanized full name, e.g. "CHAN Tai Man".
	EnglishName string `json:"english_name"`

	// HKID is the Hong Kong identity card number, e.g. "A123456(7)".
	HKID string `json:"hkid"`

	BirthDate time.Time `json:"birth_date"`
}

// ChineseName returns the concatenated surname and given name.
func (r Resident) ChineseName() string {
	return r.Surname + r.GivenName
}

// Age returns the resident's age in whole years at the given time, derived
// from the birth date. Returns -1 when the birth date is unset.
func (r Resident) Age(now time.Time) int {
	if r.BirthDate.IsZero() {
		return -1
	}
	years := now.Year() - r.BirthDate.Year()
	anniversary := r.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

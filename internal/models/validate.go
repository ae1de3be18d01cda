package models

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:_\-]{0,127}$`)
	validate      = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return ValidRoomID(fl.Field().String())
	})
	return v
}

// Validate checks the `validate` struct tags of s.
func Validate(s any) error {
	return validate.Struct(s)
}

// ValidRoomID reports whether id is a well formed room identifier.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

const privateRoomPrefix = "user:"

// PrivateRoomID is the per-user room every connection joins for direct addressing.
func PrivateRoomID(userID string) string {
	return privateRoomPrefix + userID
}

// IsPrivateRoomID reports whether id names a per-user private room.
func IsPrivateRoomID(id string) bool {
	return strings.HasPrefix(id, privateRoomPrefix)
}

package owner

import "anonuplift/internal/apperr"

var (
	ErrNotFound           = apperr.NotFound("user_not_found", "User not found.")
	ErrUsernameTaken      = apperr.Conflict("username_taken", "This username is already taken. Try another one!")
	ErrUsernameAlreadySet = apperr.Conflict("username_already_set", "You have already chosen a username.")
)

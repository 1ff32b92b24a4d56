package message

import (
	"fmt"

	"anonuplift/internal/apperr"
)

var (
	ErrNotFound        = apperr.NotFound("message_not_found", "Message not found")
	ErrForbidden       = apperr.Forbidden("Forbidden")
	ErrInvalidCategory = apperr.Validation("invalid_category", "Please select a category for your message.")
	ErrEmptyBody       = apperr.Validation("empty_message", "Message cannot be empty")
	ErrInvalidText     = apperr.Validation("invalid_characters", "Message contains characters that are not allowed")
	ErrProfanity       = apperr.Validation("profanity", "Your message contains inappropriate content. Please keep it positive!")
	ErrCaptchaRequired = apperr.Validation("captcha_required", "Please complete the captcha verification.")
	ErrCaptchaFailed   = apperr.Upstream("captcha_failed", "Captcha verification failed", nil)
)

// errTooLong is built per configured limit.
func errTooLong(max int) error {
	return apperr.Validation("message_too_long", fmt.Sprintf("Message must be at most %d characters", max))
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the minimum password length in characters.
const MinPasswordLength = 8

// PasswordSpecialChars lists the characters accepted as special characters.
const PasswordSpecialChars = `!@#$%^&*(),.?":{}|<>`

var (
	// ErrWeakPassword is wrapped by every password policy violation.
	ErrWeakPassword = errors.New("weak password")
	// ErrPasswordMismatch is returned when the confirmation differs.
	ErrPasswordMismatch = errors.New("새 비밀번호가 일치하지 않습니다.")
)

// CheckPassword validates pw against the password policy. The returned
// error wraps ErrWeakPassword and carries the user-facing reason.
func CheckPassword(pw string) error {
	if utf8.RuneCountInString(pw) < MinPasswordLength {
		return weak("비밀번호는 %d자 이상이어야 합니다.", MinPasswordLength)
	}
	if !strings.ContainsFunc(pw, isASCIILetter) {
		return weak("비밀번호는 적어도 하나의 영문자를 포함해야 합니다.")
	}
	if !strings.ContainsFunc(pw, isDigit) {
		return weak("비밀번호는 적어도 하나의 숫자를 포함해야 합니다.")
	}
	if !strings.ContainsAny(pw, PasswordSpecialChars) {
		return weak("비밀번호는 적어도 하나의 특수문자(%s)를 포함해야 합니다.", PasswordSpecialChars)
	}
	return nil
}

type policyError struct {
	msg string
}

func (e *policyError) Error() string { return e.msg }
func (e *policyError) Unwrap() error { return ErrWeakPassword }

func weak(format string, args ...any) error {
	return &policyError{msg: fmt.Sprintf(format, args...)}
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidFormat, "recipient %d missing %q", 3, "email")

	if err.Code != ErrCodeInvalidFormat {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidFormat)
	}
	if err.Message != `recipient 3 missing "email"` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("Cause should be nil, got %v", err.Cause)
	}
	if !strings.Contains(err.Error(), "INVALID_FORMAT") {
		t.Errorf("Error() should contain code, got %q", err.Error())
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeAssetLoad, cause, "failed to load %s", "bg.png")

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should contain cause, got %q", err.Error())
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeDelivery, "sink rejected submission")

	if !Is(err, ErrCodeDelivery) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeRender) {
		t.Error("Is should not match a different code")
	}
	if Is(stderrors.New("plain"), ErrCodeDelivery) {
		t.Error("Is should not match plain errors")
	}
	if Is(nil, ErrCodeDelivery) {
		t.Error("Is should not match nil")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	inner := New(ErrCodeAssetLoad, "bad image data")
	outer := fmt.Errorf("preload: %w", inner)

	if !Is(outer, ErrCodeAssetLoad) {
		t.Error("Is should unwrap fmt.Errorf chains")
	}
	if GetCode(outer) != ErrCodeAssetLoad {
		t.Errorf("GetCode = %v, want %v", GetCode(outer), ErrCodeAssetLoad)
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(ErrCodeRender, "oops")); got != ErrCodeRender {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeRender)
	}
	if got := GetCode(stderrors.New("plain")); got != "" {
		t.Errorf("GetCode for plain error = %v, want empty", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeInvalidFormat, "missing recipients field")
	if got := UserMessage(err); got != "missing recipients field" {
		t.Errorf("UserMessage = %q", got)
	}

	plain := stderrors.New("plain failure")
	if got := UserMessage(plain); got != "plain failure" {
		t.Errorf("UserMessage for plain error = %q", got)
	}
}

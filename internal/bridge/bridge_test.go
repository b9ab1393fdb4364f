package bridge

import (
	"errors"
	"testing"
)

func TestNoopBridge_GetPropertyAlwaysAbsent(t *testing.T) {
	var b Bridge = NoopBridge{}

	_, err := b.GetProperty("anything")
	if !errors.Is(err, ErrPropertyAbsent) {
		t.Fatalf("GetProperty err = %v, want ErrPropertyAbsent", err)
	}
}

func TestNoopBridge_SetPropertyNeverFails(t *testing.T) {
	var b Bridge = NoopBridge{}

	if err := b.SetProperty("key", "value"); err != nil {
		t.Fatalf("SetProperty err = %v, want nil", err)
	}
}

func TestNoopBridge_NotifyServiceDeathDoesNotPanic(t *testing.T) {
	var b Bridge = NoopBridge{}
	b.NotifyServiceDeath("startup panic")
}

package services

import (
	"testing"

	"github.com/leadbridge/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToastCenter_FanoutToAllSubscribers(t *testing.T) {
	center := NewToastCenter(nil)
	a, cancelA := center.Subscribe()
	b, cancelB := center.Subscribe()
	defer cancelA()
	defer cancelB()

	center.Notify(domain.ToastSuccess, "upload-1", "Upload complete: 495 loaded, 5 failed")

	for _, ch := range []<-chan domain.Toast{a, b} {
		select {
		case toast := <-ch:
			assert.Equal(t, domain.ToastSuccess, toast.Level)
			assert.Equal(t, "upload-1", toast.TaskID)
			assert.Contains(t, toast.Message, "495")
			assert.False(t, toast.CreatedAt.IsZero())
		default:
			t.Fatal("subscriber did not receive the toast")
		}
	}
}

func TestToastCenter_CancelStopsDelivery(t *testing.T) {
	center := NewToastCenter(nil)
	ch, cancel := center.Subscribe()

	cancel()
	_, open := <-ch
	require.False(t, open)

	// Cancel twice and notify afterwards; both must be harmless.
	cancel()
	assert.NotPanics(t, func() {
		center.Notify(domain.ToastInfo, "upload-1", "Upload paused")
	})
}

func TestToastCenter_SlowSubscriberDoesNotBlock(t *testing.T) {
	center := NewToastCenter(nil)
	ch, cancel := center.Subscribe()
	defer cancel()

	// Overfill the subscriber buffer; Notify must keep returning.
	for i := 0; i < 32; i++ {
		center.Notify(domain.ToastInfo, "upload-1", "Upload resumed")
	}
	assert.Len(t, ch, 16)
}

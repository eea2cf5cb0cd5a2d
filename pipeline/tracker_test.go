package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/alexander-bruun/vitrine/mocks"
	"github.com/alexander-bruun/vitrine/models"
)

func TestTrackerSyncedRequiresPrimary(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockProductStore(ctrl)
	tracker := NewTracker(store)

	err := tracker.Synced(context.Background(), "p1", "src", []models.Variant{{Width: 320}})
	var commitErr *models.CommitError
	assert.ErrorAs(t, err, &commitErr)
}

func TestTrackerFailedTruncatesReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockProductStore(ctrl)
	store.EXPECT().MarkSyncFailed(gomock.Any(), "p1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, reason string) error {
			assert.LessOrEqual(t, len(reason), maxSyncErrorLength)
			return nil
		})

	tracker := NewTracker(store)
	assert.NoError(t, tracker.Failed(context.Background(), "p1", errors.New(strings.Repeat("x", 2000))))
}

func TestTrackerGalleryItemStopsOnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockProductStore(ctrl)
	gomock.InOrder(
		store.EXPECT().UpsertGalleryVariant(gomock.Any(), "p1", gomock.Any()).Return(nil),
		store.EXPECT().UpsertGalleryVariant(gomock.Any(), "p1", gomock.Any()).Return(errors.New("locked")),
	)

	tracker := NewTracker(store)
	err := tracker.GalleryItem(context.Background(), "p1", []models.GalleryVariant{
		{SourceRef: "g", Width: 320},
		{SourceRef: "g", Width: 640},
		{SourceRef: "g", Width: 1200},
	})
	assert.ErrorContains(t, err, "locked")
}

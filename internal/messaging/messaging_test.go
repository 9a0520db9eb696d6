package messaging

import "testing"

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.HistoricSyncPolicy != SyncFromLastMessage {
		t.Errorf("HistoricSyncPolicy = %q, want from_last_message", opts.HistoricSyncPolicy)
	}

	for _, ct := range []string{ContentTypeText, ContentTypeImageInfo, ContentTypeImagePreview} {
		if !opts.AutoDownloads(ct) {
			t.Errorf("AutoDownloads(%q) = false, want true", ct)
		}
	}
	if opts.AutoDownloads("video/mp4") {
		t.Error("AutoDownloads(video/mp4) = true, want false")
	}
}

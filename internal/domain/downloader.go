package domain

import "context"

// ProgressCallback receives progress updates while a transfer runs
type ProgressCallback func(progress Progress)

// Downloader transfers a single episode to its download directory
type Downloader interface {
	// Download blocks until the transfer finishes. onProgress is called
	// zero or more times before Download returns.
	Download(ctx context.Context, episode *Episode, onProgress ProgressCallback) error
}

// StatusListener is notified after every queue state change and after the
// working directory changes. Calls are serialized.
type StatusListener interface {
	OnStatus(lines []string)
	OnDirectoryChange(path string)
}

// StatusListenerFuncs adapts plain functions to a StatusListener. Nil
// functions are ignored.
type StatusListenerFuncs struct {
	Status    func(lines []string)
	Directory func(path string)
}

// OnStatus implements StatusListener
func (f StatusListenerFuncs) OnStatus(lines []string) {
	if f.Status != nil {
		f.Status(lines)
	}
}

// OnDirectoryChange implements StatusListener
func (f StatusListenerFuncs) OnDirectoryChange(path string) {
	if f.Directory != nil {
		f.Directory(path)
	}
}

// Notifier sends user-facing notifications about transfers
type Notifier interface {
	NotifyDownloadStarted(title string)
	NotifyDownloadCompleted(title string)
	NotifyDownloadFailed(title string, reason string)
	NotifyQueueEmpty()
}

// omp-launcher/ui/dialog.go
package ui

import (
	"errors"
	"sync"
	"time"

	"github.com/faiface/mainthread"
	"github.com/sqweek/dialog"

	"omp-launcher/logs"
)

// ErrDialogBusy is returned when a picker is already open.
var ErrDialogBusy = errors.New("a folder picker is already open")

var (
	logger             = logs.L("ui")
	dialogMutex        = &sync.Mutex{}
	dialogRequestChan  = make(chan string)
	dialogResponseChan = make(chan dialogResponse)
)

type dialogResponse struct {
	path string
	err  error
}

// GUIManager serves picker requests on the main thread until CloseGUIManager.
// It must run inside mainthread.Run.
func GUIManager(readyChan chan<- bool) {
	readyChan <- true
	for title := range dialogRequestChan {
		var path string
		var err error
		mainthread.Call(func() {
			path, err = dialog.Directory().Title(title).Browse()
		})
		select {
		case dialogResponseChan <- dialogResponse{path: path, err: err}:
		case <-time.After(2 * time.Second):
			logger.Warn("dialog response was not collected")
		}
	}
	logger.Info("GUI manager stopped")
}

func CloseGUIManager() {
	close(dialogRequestChan)
}

// SelectGameDirectory asks the user for the GTA San Andreas folder. A cancelled
// dialog returns "" and no error.
func SelectGameDirectory() (string, error) {
	if !dialogMutex.TryLock() {
		return "", ErrDialogBusy
	}
	defer dialogMutex.Unlock()

	dialogRequestChan <- "Select your GTA San Andreas installation folder"
	resp := <-dialogResponseChan

	if errors.Is(resp.err, dialog.ErrCancelled) {
		return "", nil
	}
	return resp.path, resp.err
}

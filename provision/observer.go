// omp-launcher/provision/observer.go
package provision

// Observer is told about every change a run makes to its visible state.
// Calls come from the goroutine executing Run.
type Observer interface {
	StageChanged(stage Stage, task string)
	TaskChanged(task string)
	ProgressChanged(p Progress)
}

type NopObserver struct{}

func (NopObserver) StageChanged(Stage, string) {}
func (NopObserver) TaskChanged(string)         {}
func (NopObserver) ProgressChanged(Progress)   {}

// Observers fans every event out to each non-nil observer in order.
func Observers(list ...Observer) Observer {
	var out multiObserver
	for _, o := range list {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) StageChanged(stage Stage, task string) {
	for _, o := range m {
		o.StageChanged(stage, task)
	}
}

func (m multiObserver) TaskChanged(task string) {
	for _, o := range m {
		o.TaskChanged(task)
	}
}

func (m multiObserver) ProgressChanged(p Progress) {
	for _, o := range m {
		o.ProgressChanged(p)
	}
}

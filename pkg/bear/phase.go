package bear

// Phase is the lifecycle stage of a Service.
type Phase int32

const (
	Uninitialized Phase = iota
	Starting
	Running
	Stopping
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

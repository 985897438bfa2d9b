package cmdflow

import "fmt"

// Framework identifies which RPC mechanism a session's backend process
// uses to expose itself for remote-backtrace interrupt/resume calls
// (spec.md §4.6, §6). Each value selects a FrameworkCommandAdapter.
type Framework int

const (
	FrameworkGrpc Framework = iota
	FrameworkNu
	FrameworkServiceWeaver
)

// FrameworkCommandAdapter produces the backend-specific command text and
// caller-id encoding used by the distributed backtrace handler when it
// asks a remote session to continue unwinding into its caller.
type FrameworkCommandAdapter interface {
	// RemoteBacktraceCommand returns the MI command text that asks the
	// backend for its caller's metadata (caller identity, saved register
	// context, proclet id). Switching into that context is a separate
	// "-switch-context-custom" command.
	RemoteBacktraceCommand() string

	// CallerID renders the (ip, pid) of the calling session into the
	// wire format this framework's backend expects in its caller-id
	// argument.
	CallerID(ip string, pid uint64) string
}

// GrpcAdapter targets gRPC-transport backends.
type GrpcAdapter struct{}

func (GrpcAdapter) RemoteBacktraceCommand() string { return "-get-remote-bt" }
func (GrpcAdapter) CallerID(ip string, pid uint64) string {
	return fmt.Sprintf("%s:-%d", ip, pid)
}

// NuAdapter targets Nu-transport backends; identical wire shape to Grpc.
type NuAdapter struct{}

func (NuAdapter) RemoteBacktraceCommand() string { return "-get-remote-bt" }
func (NuAdapter) CallerID(ip string, pid uint64) string {
	return fmt.Sprintf("%s:-%d", ip, pid)
}

// ServiceWeaverAdapter targets ServiceWeaver-transport backends, which use
// a distinct remote-backtrace verb and a bare-ip caller id with no pid
// component.
type ServiceWeaverAdapter struct{}

func (ServiceWeaverAdapter) RemoteBacktraceCommand() string { return "-serviceweaver-bt-remote" }
func (ServiceWeaverAdapter) CallerID(ip string, _ uint64) string {
	return ip
}

// AdapterFor returns the FrameworkCommandAdapter for a Framework value.
func AdapterFor(f Framework) FrameworkCommandAdapter {
	switch f {
	case FrameworkServiceWeaver:
		return ServiceWeaverAdapter{}
	case FrameworkNu:
		return NuAdapter{}
	default:
		return GrpcAdapter{}
	}
}

// Package pollio provides the epoll-backed event registry that the match
// orchestrator uses to multiplex process-exit notifications and log-output
// descriptors on a single goroutine.
//
// # Registry
//
// [Registry] owns one epoll instance and a descriptor-to-[Entry] map. Every
// descriptor present in the kernel set has a corresponding map entry and
// vice versa — see [Registry.Register] and [Registry.Unregister].
//
// # Entries
//
// An [Entry] is a closed, tagged variant over the two kinds of descriptor
// the orchestrator watches: [ExitWatch] (a process-exit notification) and
// [LogReader] (a child's stderr stream). [Entry.React] turns a readiness
// event into a [CallbackMessage] that tells the caller what to do next.
//
// # Platform
//
// Linux only: process-exit notification is implemented with pidfd
// (SYS_PIDFD_OPEN), and readiness polling with epoll. Both come from
// golang.org/x/sys/unix.
package pollio

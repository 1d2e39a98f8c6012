// Package wire defines the JSON shapes exchanged with the message queue
// and the line-oriented formats written to and read from child process
// pipes. Nothing here touches the event loop: this package is the codec
// layer the orchestrator calls before spawning children and after
// collecting their output.
package wire

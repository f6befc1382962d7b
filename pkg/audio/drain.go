package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it to release a producer goroutine whose output nobody consumes any
// more, such as the event stream of a connection that is being torn down.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// Package notifier fans a set of articles out to the configured notification
// channels.
//
// # Resolution
//
// A Selection names the channels a run should use: a single channel, all
// configured channels, or none. Resolve turns it into an ordered list of
// channel kinds. "all" keeps only the channels whose credentials are present,
// always Telegram first and the webhook second.
//
// # Isolation
//
// Dispatch renders the digest once and then walks the resolved channels in
// order. A channel that cannot be constructed is skipped with a warning; a
// channel whose send fails is logged as an error. Neither stops the remaining
// channels. The returned Report records what happened to each channel and is
// never folded into a single error.
package notifier

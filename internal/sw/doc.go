// Package sw fetches SW Research industry index history from the public web
// endpoint used by the research site.
//
// Each attempt sends a random browser User-Agent. Failed attempts are logged
// and retried after a fixed sleep until the attempt limit is reached.
package sw

// Package social defines the post model shared by the social platform clients
// and the HTTP plumbing they use to talk to upstream APIs.
//
// Subpackages implement the individual platforms: twitter (API v2),
// farcaster (Neynar) and rss (Nitter or any RSS/Atom feed).
package social

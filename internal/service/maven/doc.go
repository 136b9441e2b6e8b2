// Package maven downloads the managed application from a Maven-layout
// repository: the jar itself, its published .sha1/.md5 digests, its detached
// .asc signature and the maven-metadata.xml listing released versions.
//
// Every HTTP or transport failure is reported through one error shape
// (wrapping ErrBadHTTPStatus or the transport error) so callers never branch
// on status codes.
package maven

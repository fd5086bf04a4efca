// Package portal talks to the school diary web portal.
//
// A Session is one authenticated browsing context (cookie jar plus the
// last loaded page). The extractor only depends on the Session interface;
// CollySession is the HTTP implementation used in production.
package portal

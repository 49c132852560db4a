// Package wanikani is a read-only client for the WaniKani v2 REST API.
//
// Only the three endpoints needed to fill the local cache are covered:
// /subjects, /assignments and /user. Collection endpoints are paginated;
// WalkSubjects and WalkAssignments follow pages.next_url until it is null and
// hand each page to a callback before requesting the next one, so callers can
// persist data as it arrives.
//
// Every request carries the bearer token and the pinned API revision header.
// There are no retries: a failed request ends the walk and is returned.
package wanikani

// Package server is the HTTP surface of the share service: upload,
// project listing, downloads, admin cleanup and text rooms, plus health
// and metrics endpoints. Handlers translate requests into calls on the
// sharing and textroom services and map their errors to status codes.
package server

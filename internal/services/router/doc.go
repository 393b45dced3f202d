// Package router forwards authenticated frames to their recipients.
//
// Addressed frames go to one identity through the registry; unaddressed
// frames fan out to every other connected identity. Each inbound frame gets
// exactly one delivery attempt and one DeliveryResult; nothing is queued for
// recipients that are offline.
package router

// Package connect provides the Connect RPC player control service and client.
package connect

// PlayerServiceName is the fully-qualified name of the player control service.
const PlayerServiceName = "moodbox.v1.PlayerService"

// Procedure paths of PlayerService.
const (
	PlayerServiceStatusProcedure       = "/" + PlayerServiceName + "/Status"
	PlayerServiceNextProcedure         = "/" + PlayerServiceName + "/Next"
	PlayerServicePrevProcedure         = "/" + PlayerServiceName + "/Prev"
	PlayerServiceLikeProcedure         = "/" + PlayerServiceName + "/Like"
	PlayerServiceDislikeProcedure      = "/" + PlayerServiceName + "/Dislike"
	PlayerServicePauseProcedure        = "/" + PlayerServiceName + "/Pause"
	PlayerServiceResumeProcedure       = "/" + PlayerServiceName + "/Resume"
	PlayerServiceSeekProcedure         = "/" + PlayerServiceName + "/Seek"
	PlayerServiceSlidingStartProcedure = "/" + PlayerServiceName + "/SlidingStart"
	PlayerServiceSlidingEndProcedure   = "/" + PlayerServiceName + "/SlidingEnd"
	PlayerServiceWatchProcedure        = "/" + PlayerServiceName + "/Watch"
)

// Actions maps action names to their parameterless procedures.
var Actions = map[string]string{
	"next":          PlayerServiceNextProcedure,
	"prev":          PlayerServicePrevProcedure,
	"like":          PlayerServiceLikeProcedure,
	"dislike":       PlayerServiceDislikeProcedure,
	"pause":         PlayerServicePauseProcedure,
	"resume":        PlayerServiceResumeProcedure,
	"sliding-start": PlayerServiceSlidingStartProcedure,
}

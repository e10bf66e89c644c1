// Package mqttlink implements sesame.Engine over MQTT.
//
// The BLE protocol engine (advertising, pairing, session encryption, frame
// decoding) runs in a separate daemon next to the radio. The link speaks to
// it through a small request/event contract under the engine prefix
// (default "graylogic/sesame/engine"):
//
//	{prefix}/request/begin        server → daemon  start as SESAME 5 with uuid
//	{prefix}/request/advertise    server → daemon  start/stop advertising
//	{prefix}/request/register     server → daemon  install the pairing secret
//	{prefix}/request/status       server → daemon  mechanism status to one peer or all
//	{prefix}/request/disconnect   server → daemon  drop a peer session
//	{prefix}/response/command     server → daemon  result for a decoded command
//	{prefix}/event/registration   daemon → server  a peer paired, carries the secret
//	{prefix}/event/command        daemon → server  decoded peer command
//	{prefix}/event/connect        daemon → server  session established
//	{prefix}/event/disconnect     daemon → server  session closed, with reason
//	{prefix}/status               daemon → server  readiness (retained)
//
// Session and registration state are mirrored locally from the events so
// HasSession and IsRegistered never block on the broker. Handlers are
// invoked from MQTT delivery goroutines; the sesame server only defers work
// from them.
//
// When the daemon stops reporting ready every session ends with
// ReasonEngineLost. Once it is ready again the link replays begin and the
// last advertising request, so a restarted daemon picks up the UUID and
// secret.
package mqttlink

// Package mqtt provides the optional outbound MQTT event channel.
//
// When enabled, Gatewise publishes barrier state changes, accepted
// plate captures and device connectivity to a site broker so external
// integrations (signage, space counting, third-party access systems)
// can react without polling the REST API. The gateway only publishes;
// inbound control always goes through the API.
//
// Connection management (auto-reconnect, Last Will and Testament for
// outage detection, retained state topics) is handled by the wrapped
// paho client.
package mqtt

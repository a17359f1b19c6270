// Package mqtt wraps paho.mqtt.golang for ecoSYNC Core.
//
// It provides connection management with automatic reconnection, Last
// Will and Testament on ecosync/system/status so consumers can detect a
// crashed gateway, publish/subscribe with panic-recovered handlers, and
// subscription restoration after reconnect.
//
// Topic layout is centralised in Topics; no other package builds topic
// strings by hand:
//
//	ecosync/system/status                online/offline (retained, LWT)
//	ecosync/state/{device}/{name}        sensor and flag values (retained)
//	ecosync/param/{device}/{name}        parameter values (retained)
//	ecosync/event/{type}                 alerts, device lifecycle
//	ecosync/command/...                  inbound writes and actions
package mqtt

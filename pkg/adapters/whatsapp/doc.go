// Package whatsapp connects the engine to the WhatsApp Cloud API.
//
// Webhook verifies the subscription handshake and turns message
// notifications into domain.Inbound values. Client implements
// ports.Transport on top of the Graph API messages endpoint.
package whatsapp

// Package bus implements the notification fan-out topic: producers
// append NotificationEvents to the shared store, consumers subscribe to
// a bounded live query over the unconsumed window. Delivery is
// at-least-once; ordering across concurrent producers is not guaranteed.
package bus

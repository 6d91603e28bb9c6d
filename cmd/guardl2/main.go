// Command guardl2 relays payloads across a guard link of raw Ethernet frames.
package main

func main() {
	Execute()
}

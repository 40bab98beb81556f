package pubsub

// PendingActionsTopic is the topic the driver listens on. Closures published
// here are scheduled as immediate deferred actions and run inside the next
// tick, which is how other goroutines hand work to the driver loop.
const PendingActionsTopic = "driver-pending-actions"

// ActorTopic names the private message topic of one actor. Prompts,
// refusals, and world messages for the actor are published here, and a
// wiretap observes an actor by subscribing to it.
func ActorTopic(name string) string {
	return "actor." + name
}

// LocationTopic names the shared message topic of one location. Everything
// said or done at a location is published here for all present actors.
func LocationTopic(name string) string {
	return "location." + name
}

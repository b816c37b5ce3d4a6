package config

type TelemetryTailConfig struct {
	TelemetryAPIHost string `toml:"telemetry_api_host"`
}

type TelemetryAPIConfig struct {
	SerialDevice string `toml:"serial_device"`
	Baudrate     int    `toml:"baudrate"`
	// Ignore the serial device and run the synthetic node network
	Simulate                bool  `toml:"simulate"`
	SimulationNodes         []int `toml:"simulation_nodes"`
	SimulationQueueCapacity int   `toml:"simulation_queue_capacity"`

	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`

	// Optional. Leave broker empty to disable forwarding.
	MqttBroker      string `toml:"mqtt_broker"`
	MqttTopicPrefix string `toml:"mqtt_topic_prefix"`
	MqttUsername    string `toml:"mqtt_username"`
	MqttPassword    string `toml:"mqtt_password"`
}

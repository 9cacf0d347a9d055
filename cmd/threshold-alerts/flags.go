package main

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort
	allowedOrigins
	logLevel

	policiesFile
	configurationFile
	jwtSecret

	dbHost
	dbUser
	dbPassword
	dbPort
	dbName
	dbSSLMode

	rabbitMQHost

	devmode
)

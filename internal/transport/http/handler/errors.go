package handler

const (
	errInternalServer = "Internal server error"
	errJobNotFound    = "Job not found"
	errRunNotFound    = "Run not found"
	errWorkerNotFound = "Worker not found"
	errDomainNotFound = "Domain not found"
	errDomainExists   = "Domain already exists"
)

package daemonctl

var ReadPID = readPID

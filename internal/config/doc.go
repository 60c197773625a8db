// Package config provides the scan configuration for webaudit and the
// validation gate every configuration must pass before an audit starts.
// It also loads optional YAML configuration files and Netscape cookie jars.
package config

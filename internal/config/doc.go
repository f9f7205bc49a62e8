// Package config manages persistent tool settings.
//
// Settings live in an OS-appropriate config directory
// (~/.config/espcore/config.yaml on Linux/macOS) and supply defaults
// for the serial port, baud rate, esptool/GDB binary paths, ROM ELF
// location and GDB timeout. Command-line flags always win over the
// config file.
package config

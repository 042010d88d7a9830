package config

// ExampleConfig returns an example settings file showing all available options.
func ExampleConfig() string {
	return `# fanout settings
# Values can be overridden by FANOUT_* environment variables or CLI flags

# Console logging
log_level = "info"      # debug, info, warn, error
log_format = "text"     # text, json, logfmt
log_timestamps = false
log_caller = false

# Run logs are written under <log_dir>/<project>/ (supports ~ expansion)
log_dir = "~/.fanout"

# Defaults for jobs that do not set them
thread_count = 2
# unit_timeout = "5m"

# Shell used to run target commands
# shell = ["bash", "-c"]

# Job file used when -job is not given
job_file = "fanout.hcl"
`
}

// ExampleJob returns an example HCL job file.
func ExampleJob() string {
	return `# fanout job

properties = {
  out = "build"
}

foreach {
  # Iterate over a delimited list, file lists and file sets (any combination)
  list      = "alpha,beta,gamma"
  delimiter = ","

  target       = "echo"
  param        = "item"
  absparam     = "item_path"
  thread_count = 4
  # unit_timeout = "30s"

  # fileset {
  #   dir      = "src"
  #   includes = ["**/*.txt"]
  #   excludes = ["**/tmp/**"]
  # }

  # filelist {
  #   dir   = "."
  #   files = ["README.md"]
  # }

  # Only one mapper may be configured: identity, flatten, glob, regexp, merge
  # mapper {
  #   type = "glob"
  #   from = "*.txt"
  #   to   = "*.out"
  # }
}

# Property references in commands are escaped as $${name}; properties are
# also exported as upper-cased environment variables.
target "echo" {
  command = "echo $${item} into $${out}"
}
`
}

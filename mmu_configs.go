package main

// SubsystemConfig is a predefined memory subsystem together with a sample
// template. Both are Lua scripts.
type SubsystemConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Spec        string `json:"spec"`
	Template    string `json:"template"`
}

// GetPredefinedConfigs returns all predefined memory subsystems.
func GetPredefinedConfigs() []SubsystemConfig {
	return []SubsystemConfig{
		{
			Name:        "simple",
			Description: "One 4-way LRU data cache with 64 sets of 16-byte lines",
			Spec: `
variable { name = "pa", width = 32 }
address  { name = "PA", variable = "pa" }
buffer   { name = "L1", address = "PA", ways = 4, sets = 64, policy = "LRU", replaceable = true,
           tag = "pa[31:10]", index = "pa[9:4]", offset = "pa[3:0]" }
`,
			Template: `
access    { op = "LOAD",  path = { "L1:MISS" } }
access    { op = "STORE", path = { "L1:HIT" } }
constrain { field = "pa", range = { 0x10000, 0x1ffff } }
`,
		},
		{
			Name:        "plru",
			Description: "Fully associative 8-way PLRU buffer of 64-byte lines",
			Spec: `
variable { name = "pa", width = 32 }
address  { name = "PA", variable = "pa" }
buffer   { name = "FA", address = "PA", ways = 8, policy = "PLRU", replaceable = true,
           tag = "pa[31:6]", offset = "pa[5:0]" }
`,
			Template: `
access    { op = "LOAD", path = { "FA:MISS" }, count = 2 }
access    { op = "LOAD", path = { "FA:HIT" } }
constrain { access = 2, field = "pa[5:0]", value = 0x20, bias = 50 }
`,
		},
		{
			Name:        "mips",
			Description: "MIPS-like subsystem: 32-entry JTLB, 4-entry FIFO DTLB view, 16KB L1, 256KB L2",
			Spec: `
variable { name = "va", width = 32 }
variable { name = "pa", width = 32 }
address  { name = "VA", variable = "va" }
address  { name = "PA", variable = "pa" }
buffer   { name = "JTLB", address = "VA", ways = 32, policy = "PLRU", tag = "va[31:13]" }
buffer   { name = "DTLB", address = "VA", ways = 4, policy = "FIFO", replaceable = true,
           parent = "JTLB", tag = "va[31:13]" }
buffer   { name = "L1", address = "PA", ways = 4, sets = 128, policy = "LRU", replaceable = true,
           tag = "pa[31:12]", index = "pa[11:5]", offset = "pa[4:0]" }
buffer   { name = "L2", address = "PA", ways = 8, sets = 1024, policy = "LRU", replaceable = true,
           tag = "pa[31:15]", index = "pa[14:5]", offset = "pa[4:0]" }
`,
			Template: `
access    { op = "LOAD",  path = { "JTLB:HIT", "DTLB:MISS", "L1:MISS", "L2:MISS" } }
access    { op = "STORE", path = { "JTLB:HIT", "DTLB:HIT", "L1:HIT" } }
constrain { field = "va", range = { 0x00400000, 0x0fffffff } }
constrain { field = "pa[4:0]", value = 0, bias = 50 }
`,
		},
	}
}

// GetConfigByName returns a copy of the named configuration, or nil.
func GetConfigByName(name string) *SubsystemConfig {
	for _, cfg := range GetPredefinedConfigs() {
		if cfg.Name == name {
			c := cfg
			return &c
		}
	}
	return nil
}

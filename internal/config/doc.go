// Package config provides configuration loading, merging, and path management
// for the LocalGPT session engine.
//
// # Configuration Loading
//
// Load merges configuration from several sources, later sources winning:
//
//  1. Global config (~/.config/localgpt/localgpt.json or .jsonc)
//  2. Project config (localgpt.json or localgpt.jsonc in the given directory)
//  3. LOCALGPT_CONFIG file
//  4. LOCALGPT_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// Files may be JSONC (comments are stripped with tidwall/jsonc) and support
// {env:VAR_NAME} and {file:path} placeholders. Relative {file:} paths resolve
// against the directory of the config file that contains them.
//
//	{
//	  "model": "anthropic/claude-3-5-sonnet-20240620",
//	  "provider": {
//	    "anthropic": {
//	      "options": {
//	        "apiKey": "{env:ANTHROPIC_API_KEY}"
//	      }
//	    }
//	  },
//	  "server": {"port": 9999, "framing": "raw"},
//	  "session": {"softCap": 20, "keepRecent": 10}
//	}
//
// # Environment Variable Overrides
//
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY - provider keys when none is configured
//   - LOCALGPT_MODEL - override the model
//   - LOCALGPT_PORT - override the session server port
//   - LOCALGPT_CONFIG - path to a specific config file
//   - LOCALGPT_CONFIG_CONTENT - inline JSON configuration
//
// # Path Management
//
// Paths follows the XDG base directory layout under a "localgpt" directory.
// Memory and knowledge live under Data, the sandbox virtualenv under Cache.
package config

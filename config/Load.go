package config

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schema constrains configuration files. #Config is a definition, so
// fields which it does not declare are rejected. Solvers and weight
// initializers are validated when they are decoded.
const schema = `
#Activation: "relu" | "identity" | "tanh" | "sigmoid"

#Config: {
	saveDir?:    string & !=""
	seed?:       int & >=0
	vocab?:      int & >=2
	seqLength?:  int & >=1
	startToken?: int & >=0
	batchSize?:  int & >=1

	generator?: {
		embDim?:            int & >=1
		hiddenDim?:         int & >=1
		activation?:        #Activation
		init?:              {...}
		pretrainSolver?:    {...}
		adversarialSolver?: {...}
	}

	discriminator?: {
		buckets?:     int & >=1
		ngram?:       int & >=1
		hiddenSizes?: [...(int & >=1)]
		activations?: [...#Activation]
		init?:        {...}
		solver?:      {...}
		l2?:          number & >=0
	}

	oracle?: {
		embDim?:    int & >=1
		hiddenDim?: int & >=1
	}

	rollout?: {
		num?:        int & >=1
		updateRate?: number & >=0 & <1
	}

	training?: {
		preEpochs?:         int & >=0
		totalBatch?:        int & >=0
		generatedNum?:      int & >=1
		generatorSteps?:    int & >=1
		evalEvery?:         int & >=1
		disPretrainRounds?: int & >=0
		disRounds?:         int & >=0
		disEpochs?:         int & >=1
	}

	log?: {
		level?:    "debug" | "info" | "warn" | "error" | "DEBUG" | "INFO" | "WARN" | "ERROR"
		jsonFile?: string
		journal?:  bool
	}
}
`

// Load loads the configuration file at path. Values set in the file
// replace the defaults; all other values keep their default.
func Load(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: %w", err)
	}
	return Parse(content, path)
}

// Parse parses CUE or JSON configuration source. The filename is used
// only in error messages.
func Parse(content []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return Config{}, fmt.Errorf("parse: could not compile schema: %v",
			err)
	}

	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, fmt.Errorf("parse: %v", err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("parse: %v: %v", filename, err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return Config{}, fmt.Errorf("parse: %v", err)
	}

	c := Default()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse: %v: %v", filename, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("parse: %v: %v", filename, err)
	}
	return c, nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/qrioso-software/qriosdeploy/internal/assets"
	"github.com/qrioso-software/qriosdeploy/internal/config"
	"github.com/qrioso-software/qriosdeploy/internal/engine"
	"github.com/qrioso-software/qriosdeploy/internal/provision"
)

const defaultConfigFile = "qrioso-deploy.yml"

func main() {
	var cfgPath string
	var region string
	var skipBuild bool

	root := &cobra.Command{
		Use:   "qriosdeploy",
		Short: "Qrioso Deploy: YAML -> CloudFormation + Lambda",
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigFile, "Ruta del YAML")

	stack := "qrioso-example"
	initRegion := "us-east-1"

	// ===== qriosdeploy init =====
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Inicializa un proyecto con " + defaultConfigFile + " de ejemplo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(defaultConfigFile); err == nil {
				return fmt.Errorf("ya existe %s en el directorio", defaultConfigFile)
			}

			file, err := assets.Templates.ReadFile("templates/qrioso-deploy.tmpl.yml")
			if err != nil {
				return fmt.Errorf("error reading template: %w", err)
			}

			t := template.Must(template.New("cfg").Parse(string(file)))
			f, err := os.Create(defaultConfigFile)
			if err != nil {
				return err
			}
			defer f.Close()

			data := struct {
				Stack  string
				Region string
			}{stack, initRegion}

			if err := t.Execute(f, data); err != nil {
				return err
			}
			_ = os.MkdirAll("build", 0755)
			log.Printf("✅ Creado %s y carpeta build/", defaultConfigFile)
			return nil
		},
	}
	initCmd.Flags().StringVar(&stack, "stack", stack, "Nombre del stack")
	initCmd.Flags().StringVar(&initRegion, "region", initRegion, "Región AWS (ej. us-east-1)")

	// ===== qriosdeploy validate =====
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Valida el archivo de configuración y el template de CloudFormation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, region)
			if err != nil {
				return err
			}
			if err := cfg.ValidateTemplate(); err != nil {
				return err
			}
			log.Printf("✅ %s y %s válidos", cfgPath, cfg.Template)
			return nil
		},
	}

	// ===== qriosdeploy deploy =====
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Construye, empaqueta y despliega; luego actualiza el código de las funciones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, region)
			if err != nil {
				return err
			}
			if err := cfg.ValidateTemplate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			eng.SkipBuild = skipBuild

			return eng.Deploy(ctx)
		},
	}
	deployCmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Omite el paso de build")

	// ===== qriosdeploy watch =====
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Despliega una vez y re-publica el código al detectar cambios",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, region)
			if err != nil {
				return err
			}
			if err := cfg.ValidateTemplate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}

			wr, err := engine.NewWatchRunner(cfg, eng)
			if err != nil {
				return err
			}
			defer wr.Stop()
			return wr.Start(ctx)
		},
	}

	// ===== qriosdeploy outputs =====
	outputsCmd := &cobra.Command{
		Use:   "outputs",
		Short: "Muestra los outputs del stack desplegado",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath, region)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := provision.NewService(ctx, cfg)
			if err != nil {
				return err
			}
			outputs, err := svc.StackOutputs(ctx)
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(outputs))
			for k := range outputs {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\n", k, outputs[k])
			}
			return w.Flush()
		},
	}

	// ===== qriosdeploy doctor =====
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verifica requisitos del entorno",
		Run: func(cmd *cobra.Command, args []string) {
			check := func(bin string) {
				if _, err := exec.LookPath(bin); err != nil {
					log.Printf("❌ %s no encontrado", bin)
				} else {
					log.Printf("✅ %s OK", bin)
				}
			}

			cfg, err := loadConfig(cfgPath, region)
			if err != nil {
				log.Printf("⚠️ Cannot read %s (%v), checking defaults", cfgPath, err)
				check("npm")
			} else {
				check(cfg.Build.Command[0])
				check(cfg.Package.Command[0])
			}

			probeRegion := "us-east-1"
			if cfg != nil {
				probeRegion = cfg.Region
			}
			arn, err := provision.CallerIdentity(context.Background(), probeRegion)
			if err != nil {
				log.Printf("❌ AWS creds no válidas o no configuradas: %v", err)
			} else {
				log.Printf("✅ AWS creds OK: %s", arn)
			}
		},
	}

	for _, cmd := range []*cobra.Command{deployCmd, watchCmd, validateCmd, outputsCmd, doctorCmd} {
		cmd.Flags().StringVar(&region, "region", "", "Región AWS (sobrescribe la del YAML)")
	}

	root.AddCommand(initCmd, validateCmd, deployCmd, watchCmd, outputsCmd, doctorCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads and validates the config, applying the --region override
// before validation so the override is subject to the same checks.
func loadConfig(path, regionOverride string) (*config.DeployConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if regionOverride != "" {
		cfg.Region = regionOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEngine(ctx context.Context, cfg *config.DeployConfig) (*engine.Engine, error) {
	svc, err := provision.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	toolchain := engine.NewToolchain(cfg)
	return engine.New(cfg, toolchain, toolchain, svc), nil
}
